package checkout

import (
	"github.com/google/uuid"
)

const (
	commandType = "StartCheckout"
)

// Command represents a buyer's intent to purchase a book.
// It encapsulates all the necessary information required to start the checkout use case.
type Command struct {
	BookID  uuid.UUID
	BuyerID uuid.UUID
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(bookID uuid.UUID, buyerID uuid.UUID) Command {
	return Command{
		BookID:  bookID,
		BuyerID: buyerID,
	}
}
