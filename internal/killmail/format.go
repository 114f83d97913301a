package killmail

import (
	"fmt"
	"strings"

	"wanderer-notifier/internal/model"
)

// format produces the dispatch-ready notification for an enriched killmail.
func format(kill model.Killmail) model.Notification {
	title := fmt.Sprintf("Kill: %d", kill.KillmailID)
	var desc strings.Builder
	fmt.Fprintf(&desc, "Value: %.0f ISK", kill.Zkb.TotalValue)

	fields := []model.EmbedField{
		{Name: "System", Value: fmt.Sprintf("%d", kill.SolarSystemID), Inline: true},
		{Name: "Points", Value: fmt.Sprintf("%d", kill.Zkb.Points), Inline: true},
	}
	if kill.Victim.CharacterID != 0 {
		fields = append(fields, model.EmbedField{
			Name: "Victim", Value: fmt.Sprintf("%d", kill.Victim.CharacterID), Inline: true,
		})
	}
	fields = append(fields, model.EmbedField{
		Name: "Attackers", Value: fmt.Sprintf("%d", len(kill.Attackers)), Inline: true,
	})

	return model.Notification{
		Kind:    model.KindKill,
		Content: title,
		Embeds: []model.Embed{{
			Title:       title,
			Description: desc.String(),
			Color:       0xB30000,
			Fields:      fields,
		}},
	}
}
