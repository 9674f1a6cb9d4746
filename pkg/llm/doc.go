// Package llm adapts chat-completion backends to the game master's Generator contract.
//
// A Generator receives the full session transcript and returns the backend's raw reply.
// Providers translate transcript roles to the vendor's message format; PromptedGenerator
// prepends the current game master system prompt to every call.
package llm
