// Package history bounds a conversation transcript to a token budget before
// it is sent to an inference provider.
//
// Token counts are approximate: a token is one whitespace-delimited segment
// of a message's content. This deliberately differs from the subword
// tokenizers used by providers and must not be replaced without revisiting
// the budgets configured for the chat endpoints.
package history
