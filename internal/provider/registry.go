package provider

import (
	"context"

	"github.com/hguangin/soultalk-tool/internal/client"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// Capability names used in failover logs and errors.
const (
	CapabilityTranscription = "transcription"
	CapabilityAlignment     = "alignment"
)

// Transcriber converts remote audio into a word-timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, language string) (*model.Transcript, error)
}

// Aligner answers one chat prompt, reporting how the reply finished.
type Aligner interface {
	ChatCompletion(ctx context.Context, system, user string) (*client.ChatResult, error)
}

// Entry is one provider in a capability's fallback chain. Unconfigured
// entries stay registered and are skipped at call time, so a credential
// added later slots into the same position.
type Entry[T any] struct {
	ID         string
	Client     T
	Configured bool
}

// Registry holds every known provider per capability in default order.
type Registry struct {
	Transcribers []Entry[Transcriber]
	Aligners     []Entry[Aligner]
}

// TranscriberChain builds the transcription fallback chain for the given id
// order and optional preferred provider.
func (r *Registry) TranscriberChain(ids []string, preferred string) []Entry[Transcriber] {
	return Order(r.Transcribers, ids, preferred)
}

// AlignerChain builds the alignment fallback chain for the given id order
// and optional preferred provider.
func (r *Registry) AlignerChain(ids []string, preferred string) []Entry[Aligner] {
	return Order(r.Aligners, ids, preferred)
}

// Order maps ids onto registry entries, with preferred moved to the front
// when it names a known provider. Ids without a matching entry are dropped,
// and entries not named in ids are left out of the chain.
func Order[T any](entries []Entry[T], ids []string, preferred string) []Entry[T] {
	byID := make(map[string]Entry[T], len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	out := make([]Entry[T], 0, len(entries))
	seen := make(map[string]bool, len(entries))
	take := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if e, ok := byID[id]; ok {
			out = append(out, e)
			seen[id] = true
		}
	}

	take(preferred)
	for _, id := range ids {
		take(id)
	}
	return out
}
