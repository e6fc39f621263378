// README: Common value objects shared across modules.
package types

// ID is a server-assigned, monotonic record identifier.
type ID int64

// Money holds an amount in centavos.
type Money struct {
	Amount   int64
	Currency string
}

// BRL builds a Money in the operator's home currency.
func BRL(centavos int64) Money {
	return Money{Amount: centavos, Currency: "BRL"}
}
