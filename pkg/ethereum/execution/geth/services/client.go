package services

import "strings"

// Client is an execution client implementation.
type Client string

const (
	ClientUnknown    Client = "unknown"
	ClientGeth       Client = "geth"
	ClientNethermind Client = "nethermind"
	ClientBesu       Client = "besu"
	ClientErigon     Client = "erigon"
	ClientReth       Client = "reth"
)

var knownClients = []Client{ClientGeth, ClientNethermind, ClientBesu, ClientErigon, ClientReth}

// ClientFromString derives the client from a web3_clientVersion string such
// as "Geth/v1.14.0-stable/linux-amd64/go1.22.1".
func ClientFromString(version string) Client {
	lower := strings.ToLower(version)

	for _, client := range knownClients {
		if strings.HasPrefix(lower, string(client)) {
			return client
		}
	}

	return ClientUnknown
}

// DepthBaseline returns the structlog depth of the outermost frame for the
// client. Erigon counts from 0, the others from 1.
func (c Client) DepthBaseline() uint64 {
	if c == ClientErigon {
		return 0
	}

	return 1
}
