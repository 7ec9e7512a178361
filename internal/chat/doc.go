// Package chat defines the domain types shared by the GoChat client: users,
// sessions, rooms and messages, plus the tolerant decoders used for message
// payloads coming from the backend over HTTP and over the real-time channel.
package chat
