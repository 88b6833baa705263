// Package event distributes policy reload notifications between
// instances over a shared Redis pub/sub channel.
//
// The protocol is a single message kind: a payload beginning with the
// reload marker tells every subscriber to reload its policies from the
// configured source. Each publisher appends its own instance identity
// so operators can trace which instance triggered a fleet-wide reload;
// subscribers match on the marker prefix only and reload regardless of
// origin, their own messages included.
package event
