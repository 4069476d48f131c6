/*
Package ngram provides a character-level n-gram language model for Go.

A model is trained over every history length from 1 up to a chosen order in
parallel, then used to generate text one character at a time. When the
longest history has never been seen, ranking falls back to shorter histories
using "stupid backoff", discounting each step down by a fixed factor.

Models can be persisted to any SQLite database through a Store, and exported
to or imported from a versioned JSON encoding.
*/
package ngram
