package transport

import (
	"fmt"

	"github.com/c360studio/teamrelay/directory"
)

// NATS subjects. Outbound deliveries go to a per-identity subject so a
// bridge process (the piece that talks to the actual chat product) can
// subscribe with a single wildcard.
const (
	// SubjectInbound carries Event values from the bridge to the relay.
	SubjectInbound = "teamrelay.inbound"

	// subjectOutboundPrefix is the root of all outbound delivery subjects:
	// teamrelay.chat.<identity>.<kind>.
	subjectOutboundPrefix = "teamrelay.chat"
)

// Outbound delivery kinds, the last token of an outbound subject.
const (
	kindText     = "text"
	kindDocument = "document"
	kindForward  = "forward"
	kindPrompt   = "prompt"
	kindEdit     = "edit"
)

func outboundSubject(to directory.Identity, kind string) string {
	return fmt.Sprintf("%s.%d.%s", subjectOutboundPrefix, to, kind)
}

// OutboundWildcard is the subscription pattern a bridge uses to receive
// every outbound delivery.
func OutboundWildcard() string {
	return subjectOutboundPrefix + ".>"
}
