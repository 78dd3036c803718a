package notify

import (
	"fmt"
	"time"
)

// Names used when an appointment has no reference or the lookup fails.
const (
	PlaceholderProfessional = "um profissional"
	PlaceholderService      = "um serviço"
)

var monthNames = [12]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatAnnouncement renders the pt-BR sentence for a new appointment, e.g.
// "Ana agendou com Carlos o serviço Corte para hoje às 15 e 00". The date
// reads "hoje" when start falls on now's calendar day in loc, and "10 de
// maio" otherwise.
func FormatAnnouncement(client, professional, service string, start, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	start = start.In(loc)
	return fmt.Sprintf("%s agendou com %s o serviço %s para %s às %02d e %02d",
		client, professional, service, dateText(start, now.In(loc)), start.Hour(), start.Minute())
}

func dateText(start, now time.Time) string {
	sy, sm, sd := start.Date()
	ny, nm, nd := now.Date()
	if sy == ny && sm == nm && sd == nd {
		return "hoje"
	}
	return fmt.Sprintf("%d de %s", sd, monthNames[sm-1])
}
