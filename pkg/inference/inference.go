// Package inference sends conversation histories to a chat-completion
// service and returns the assistant's reply.
//
// Client speaks the OpenAI-compatible HTTP API directly, so it also works
// against Ollama, vLLM or Groq. OpenAI goes through the official openai-go
// SDK. Both make exactly one request per Send; the knowledge client decides
// whether a failure is worth another attempt.
//
//	llm, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	defer llm.Close()
//
//	reply, err := llm.Send(ctx, []inference.Message{
//	    inference.NewSystemMessage("You are JARVIS."),
//	    inference.NewUserMessage("Good evening."),
//	})
package inference

import "context"

// Transport performs a single chat-completion round trip.
type Transport interface {
	Send(ctx context.Context, messages []Message) (string, error)
}

// Provider is a Transport that can also report whether the service is
// reachable with the configured credentials.
type Provider interface {
	Transport
	Health(ctx context.Context) error
	Close() error
}
