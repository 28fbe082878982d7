package activity

import (
	"fmt"
	"time"
)

var monthsPtBR = [...]string{"jan.", "fev.", "mar.", "abr.", "mai.", "jun.", "jul.", "ago.", "set.", "out.", "nov.", "dez."}

// RelativeTime renders t relative to now in pt-BR. Anything older than a day
// becomes a short calendar date in now's location, e.g. "13 de out.".
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "agora mesmo"
	case d < time.Hour:
		return fmt.Sprintf("%dm atrás", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh atrás", int(d/time.Hour))
	}
	local := t.In(now.Location())
	return fmt.Sprintf("%02d de %s", local.Day(), monthsPtBR[local.Month()-1])
}
