/*
Package intake is a deterministic intent and slot resolution engine for
structured intake dialogues, such as the registration of a patient at an
orthopedic clinic.

It walks a hierarchical intent tree, resolves each slot from its declared source
(user input, an external record lookup, or a rule computed from other slots),
enforces validation and depends_on conditions, and decides the next structured
action: ask a slot, run the lookup, descend to a child intent, or complete.
The engine never produces natural language. Understanding and wording belong to
the host; records come from a ports.RecordProvider.

# Concept

A schema (YAML or JSON) is loaded once into an immutable *schema.Model and shared
by every session. A *domain.Session holds the answers of one conversation and is
owned by the caller: the Engine mutates it only during the call it is passed to.
Service adds persistence by session ID on top of any ports.SessionStore.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/intake"
		"github.com/aretw0/intake/pkg/adapters/memory"
		"github.com/aretw0/intake/pkg/demo"
		"github.com/aretw0/intake/pkg/domain"
	)

	func main() {
		patients, err := demo.Patients()
		if err != nil {
			log.Fatal(err)
		}
		eng, err := intake.New(demo.MustSchema(), intake.WithProvider(memory.NewProvider(patients)))
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		sess := eng.Start("session-123")
		for {
			action, err := eng.NextAction(ctx, sess)
			if err != nil {
				log.Fatal(err)
			}
			switch action.Kind {
			case domain.ActionAskSlot:
				// Ask the user, then:
				// eng.Ingest(ctx, sess, action.Slot, answer)
			case domain.ActionLookup:
				if _, err := eng.TriggerLookup(ctx, sess); err != nil {
					log.Fatal(err)
				}
			case domain.ActionComplete:
				fmt.Println("done:", action.Intent)
				return
			}
		}
	}
*/
package intake
