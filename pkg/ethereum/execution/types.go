package execution

// TraceOptions configures debug_traceTransaction parameters.
type TraceOptions struct {
	DisableStorage   bool
	DisableStack     bool
	DisableMemory    bool
	EnableReturnData bool
}

// DefaultTraceOptions returns the options call tree reconstruction needs:
// stack on, memory and storage off.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		DisableStorage: true,
		DisableStack:   false,
		DisableMemory:  true,
	}
}

// MemoryTraceOptions returns options with memory capture enabled as well.
func MemoryTraceOptions() TraceOptions {
	return TraceOptions{
		DisableStorage: true,
		DisableStack:   false,
		DisableMemory:  false,
	}
}

// Params returns the tracer config object sent as the second
// debug_traceTransaction parameter.
func (o TraceOptions) Params() map[string]any {
	params := map[string]any{
		"disableStack":   o.DisableStack,
		"disableMemory":  o.DisableMemory,
		"disableStorage": o.DisableStorage,
	}

	if o.EnableReturnData {
		params["enableReturnData"] = true
	}

	return params
}
