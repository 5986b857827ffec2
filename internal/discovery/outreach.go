package discovery

import (
	"fmt"
	"strings"

	"github.com/mathiasgse/screenfree/internal/model"
)

var outreachAsks = []string{
	"- 2 bis 3 hochauflösende Fotos (Zimmer, Außenansicht, ein besonderes Detail)",
	"- Preisklasse bzw. ungefährer Preis pro Nacht",
	"- 2 bis 3 Sätze: Was macht Ihr Haus besonders? Warum kommen Gäste zu Ihnen?",
	"- Zielgruppe (Paare, Familien, Solo-Reisende usw.)",
}

const outreachTemplate = `Betreff: Stille Orte Magazin: Ihr Haus «%[1]s» in unserer Sammlung

Guten Tag,

wir kuratieren mit Stille Orte (still-magazin.com) eine redaktionelle Sammlung besonderer Rückzugsorte im Alpenraum: kleine, ruhige Unterkünfte abseits des Mainstreams.

Ihr Haus «%[1]s» hat uns besonders angesprochen und wir würden Sie gerne in unsere Sammlung aufnehmen.

Damit wir Ihren Eintrag so ansprechend wie möglich gestalten können, würden wir uns über folgende Informationen freuen:

%[2]s

Der Eintrag ist für Sie selbstverständlich kostenlos. Wir verlinken direkt auf Ihre Website. Es handelt sich um eine redaktionelle Empfehlung, kein Buchungsportal.

Herzliche Grüße
Das Stille-Orte-Team
still-magazin.com`

// OutreachEmail drafts the German request for listing details sent to the
// owner of an accepted candidate. Missing coordinates add an address ask.
func OutreachEmail(c *model.Candidate) string {
	asks := append([]string(nil), outreachAsks...)
	if c.Coordinates == nil {
		asks = append(asks, "- Genaue Adresse oder Koordinaten Ihres Hauses")
	}
	return fmt.Sprintf(outreachTemplate, c.Name, strings.Join(asks, "\n"))
}
