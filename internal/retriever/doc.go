// Package retriever downloads documents and checks them against the size the
// remote side declared, retrying incomplete or failed transfers.
package retriever
