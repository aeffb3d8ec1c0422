package synth

import (
	"fmt"
	"strings"
)

// DocumentParams carries everything that gets embedded into the action
// document. All string fields are markup-escaped on the way in.
type DocumentParams struct {
	Site            string
	FixletID        string
	TargetRelevance string
	Offset          string
	Title           string
}

var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeMarkup escapes the five reserved markup characters.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

const actionDocumentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<BES xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="BES.xsd">
	<SourcedFixletAction>
		<SourceFixlet>
			<Sitename>%s</Sitename>
			<FixletID>%s</FixletID>
			<Action>Action1</Action>
		</SourceFixlet>
		<Target>
			<CustomRelevance>%s</CustomRelevance>
		</Target>
		<Settings>
			<ActionUITitle>%s</ActionUITitle>
			<HasEndTime>true</HasEndTime>
			<EndDateTimeOffset>%s</EndDateTimeOffset>
			<UseUTCTime>true</UseUTCTime>
		</Settings>
	</SourcedFixletAction>
</BES>
`

// BuildActionDocument renders the wire-format action document: the source
// fixlet reference, the computed target relevance and the completion deadline
// with its UTC interpretation flag.
func BuildActionDocument(p DocumentParams) string {
	return fmt.Sprintf(actionDocumentTemplate,
		EscapeMarkup(p.Site),
		EscapeMarkup(p.FixletID),
		EscapeMarkup(p.TargetRelevance),
		EscapeMarkup(p.Title),
		EscapeMarkup(p.Offset),
	)
}
