package core

import (
	"context"
)

// Transactor runs functions within a database transaction.
type Transactor interface {
	// WithinTx runs fn in a transaction which is committed if fn returns nil, rolled back otherwise.
	// Repositories called with the context passed to fn join the transaction.
	// Nested calls join the outermost transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
