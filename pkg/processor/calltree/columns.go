package calltree

import (
	"time"

	"github.com/ClickHouse/ch-go/proto"
)

// Columns holds all columns for call_frame batch insert using ch-go columnar protocol.
type Columns struct {
	UpdatedDateTime   proto.ColDateTime
	BlockNumber       proto.ColUInt64
	TransactionHash   proto.ColStr
	CallFrameID       proto.ColUInt32
	ParentCallFrameID *proto.ColNullable[uint32]
	Depth             proto.ColUInt32
	CallType          proto.ColStr
	OpcodeCount       proto.ColUInt64
	Gas               proto.ColUInt64
	GasCumulative     proto.ColUInt64
	GasLimit          proto.ColUInt64
	Success           proto.ColBool
	Error             *proto.ColNullable[string]
	Reverted          proto.ColBool
	MetaNetworkName   proto.ColStr
}

// NewColumns creates a new Columns instance with all columns initialized.
func NewColumns() *Columns {
	return &Columns{
		ParentCallFrameID: new(proto.ColUInt32).Nullable(),
		Error:             new(proto.ColStr).Nullable(),
	}
}

// Append adds a row to all columns.
func (c *Columns) Append(updated time.Time, blockNumber uint64, txHash, network string, row *CallFrameRow) {
	c.UpdatedDateTime.Append(updated)
	c.BlockNumber.Append(blockNumber)
	c.TransactionHash.Append(txHash)
	c.CallFrameID.Append(row.CallFrameID)
	c.ParentCallFrameID.Append(nullableUint32(row.ParentCallFrameID))
	c.Depth.Append(row.Depth)
	c.CallType.Append(row.CallType)
	c.OpcodeCount.Append(row.OpcodeCount)
	c.Gas.Append(row.Gas)
	c.GasCumulative.Append(row.GasCumulative)
	c.GasLimit.Append(row.GasLimit)
	c.Success.Append(row.Success)
	c.Error.Append(nullableStr(row.Error))
	c.Reverted.Append(row.Reverted)
	c.MetaNetworkName.Append(network)
}

// Reset clears all columns for reuse.
func (c *Columns) Reset() {
	c.UpdatedDateTime.Reset()
	c.BlockNumber.Reset()
	c.TransactionHash.Reset()
	c.CallFrameID.Reset()
	c.ParentCallFrameID.Reset()
	c.Depth.Reset()
	c.CallType.Reset()
	c.OpcodeCount.Reset()
	c.Gas.Reset()
	c.GasCumulative.Reset()
	c.GasLimit.Reset()
	c.Success.Reset()
	c.Error.Reset()
	c.Reverted.Reset()
	c.MetaNetworkName.Reset()
}

// Input returns the proto.Input for inserting data.
func (c *Columns) Input() proto.Input {
	return proto.Input{
		{Name: "updated_date_time", Data: &c.UpdatedDateTime},
		{Name: "block_number", Data: &c.BlockNumber},
		{Name: "transaction_hash", Data: &c.TransactionHash},
		{Name: "call_frame_id", Data: &c.CallFrameID},
		{Name: "parent_call_frame_id", Data: c.ParentCallFrameID},
		{Name: "depth", Data: &c.Depth},
		{Name: "call_type", Data: &c.CallType},
		{Name: "opcode_count", Data: &c.OpcodeCount},
		{Name: "gas", Data: &c.Gas},
		{Name: "gas_cumulative", Data: &c.GasCumulative},
		{Name: "gas_limit", Data: &c.GasLimit},
		{Name: "success", Data: &c.Success},
		{Name: "error", Data: c.Error},
		{Name: "reverted", Data: &c.Reverted},
		{Name: "meta_network_name", Data: &c.MetaNetworkName},
	}
}

// Rows returns the number of rows in the columns.
func (c *Columns) Rows() int {
	return c.CallFrameID.Rows()
}

// CreateTableQuery is the DDL for the call frame table.
func CreateTableQuery(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
	updated_date_time DateTime,
	block_number UInt64,
	transaction_hash String,
	call_frame_id UInt32,
	parent_call_frame_id Nullable(UInt32),
	depth UInt32,
	call_type LowCardinality(String),
	opcode_count UInt64,
	gas UInt64,
	gas_cumulative UInt64,
	gas_limit UInt64,
	success Bool,
	error Nullable(String),
	reverted Bool,
	meta_network_name LowCardinality(String)
) ENGINE = ReplacingMergeTree(updated_date_time)
ORDER BY (meta_network_name, transaction_hash, call_frame_id)`
}

// nullableStr converts a *string to proto.Nullable[string].
func nullableStr(s *string) proto.Nullable[string] {
	if s == nil {
		return proto.Null[string]()
	}

	return proto.NewNullable(*s)
}

// nullableUint32 converts a *uint32 to proto.Nullable[uint32].
func nullableUint32(v *uint32) proto.Nullable[uint32] {
	if v == nil {
		return proto.Null[uint32]()
	}

	return proto.NewNullable(*v)
}
