// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events publishes session state changes for downstream consumers.

The assignment engine emits an Event after each committed change:

  - assigned: a session took its units
  - screened_out: a session was turned away (under_age, no_matching_group, quota_full)
  - completed: a session finished annotating
  - expired: the inactivity sweep released a session

NATSPublisher sends them as JSON on "<subject>.<type>", with subject
defaulting to annotate.assignments. When no NATS URL is configured the
server uses Nop.

	pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		log.Fatal(err)
	}
	defer pub.Close()

Events are informational. The database remains the source of truth and a
failed publish never fails the request.
*/
package events
