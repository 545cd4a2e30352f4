package solwatcher

// Unit conversion constants and helpers between lamports and SOL.
const LamportsPerSOL = int64(1_000_000_000)

func LamportsToSOL(l int64) float64 { return float64(l) / float64(LamportsPerSOL) }
func SOLToLamports(s float64) int64 { return int64(s * float64(LamportsPerSOL)) }
