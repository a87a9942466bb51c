// Package ore describes the on-chain side of the ORE mining program: program
// and account addresses, account layouts, and instruction encodings.
//
// Accounts are fixed-size Pod structs prefixed by an 8-byte discriminator
// whose first byte identifies the account type. Instructions are a one-byte
// tag followed by little-endian arguments.
package ore
