package execution

// SanitizeGasCost detects and corrects corrupted gasCost values from Erigon's
// debug_traceTransaction RPC.
//
// Bug: Erigon has an unsigned integer underflow bug in gas.go:callGas() where
// `availableGas - base` underflows when availableGas < base, producing huge
// corrupted values (e.g., 18158513697557845033).
//
// Detection: gasCost can never legitimately exceed the available gas at that
// opcode. If gasCost > Gas, the value is corrupted.
//
// Correction: Set gasCost = Gas (all available gas consumed). Records without
// a readable gas or gasCost are left for the decoder to reject.
func SanitizeGasCost(log *StructLog) bool {
	if IsAbsent(log.Gas) || IsAbsent(log.GasCost) {
		return false
	}

	gas, err := DecodeUint64(log.Gas)
	if err != nil {
		return false
	}

	cost, err := DecodeUint64(log.GasCost)
	if err != nil {
		return false
	}

	if cost > gas {
		log.GasCost = RawUint64(gas)

		return true
	}

	return false
}

// SanitizeStructLogs applies gas cost sanitization to all structlogs and
// returns how many records were corrected.
func SanitizeStructLogs(logs []StructLog) int {
	corrected := 0

	for i := range logs {
		if SanitizeGasCost(&logs[i]) {
			corrected++
		}
	}

	return corrected
}
