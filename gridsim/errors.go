package gridsim

import "errors"

var (
	// ErrGameOver is returned by every mutating command once a spawn has
	// collided. Observe keeps working and Reset starts a new game.
	ErrGameOver = errors.New("gridsim: game over")

	// ErrInvalidConfig wraps every error New returns.
	ErrInvalidConfig = errors.New("gridsim: invalid config")
)
