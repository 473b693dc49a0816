package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientFromString(t *testing.T) {
	tests := []struct {
		version string
		want    Client
	}{
		{version: "Geth/v1.14.0-stable-87246f3c/linux-amd64/go1.22.1", want: ClientGeth},
		{version: "erigon/2.60.1/linux-amd64/go1.21.5", want: ClientErigon},
		{version: "Nethermind/v1.26.0+0068729c/linux-x64/dotnet8.0.4", want: ClientNethermind},
		{version: "besu/v24.5.1/linux-x86_64/openjdk-java-21", want: ClientBesu},
		{version: "reth/v1.0.0-d599393/x86_64-unknown-linux-gnu", want: ClientReth},
		{version: "", want: ClientUnknown},
		{version: "something-else/1.0", want: ClientUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientFromString(tt.version))
		})
	}
}

func TestDepthBaseline(t *testing.T) {
	assert.Equal(t, uint64(0), ClientErigon.DepthBaseline())
	assert.Equal(t, uint64(1), ClientGeth.DepthBaseline())
	assert.Equal(t, uint64(1), ClientUnknown.DepthBaseline())
}
