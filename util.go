package main

import (
	"crypto/rand"
	"math"
	"math/big"
)

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// round2 rounds to two decimals
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NormalizeAngle wraps angle to [-PI, PI]
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

const (
	lobbyCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lobbyCodeLen   = 4
)

// generateLobbyCode returns a random code of uppercase letters
func generateLobbyCode() string {
	b := make([]byte, lobbyCodeLen)
	max := big.NewInt(int64(len(lobbyCodeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = lobbyCodeChars[idx.Int64()]
	}
	return string(b)
}
