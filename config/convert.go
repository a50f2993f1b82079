package config

import (
	"math/big"
	"time"
)

func bigFromInt64(v int64) *big.Int {
	return big.NewInt(v)
}

func secondsToDuration(v int64) time.Duration {
	return time.Duration(v) * time.Second
}
