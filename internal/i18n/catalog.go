package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// German strings for bot replies. Untranslated keys fall back to English.
var german = map[string]string{
	"Unauthorized.":                   "Nicht berechtigt.",
	"No tunnels configured.":          "Keine Tunnel konfiguriert.",
	"Health check port: %s":           "Health-Check-Port: %s",
	"No such tunnel. Use /list.":      "Tunnel nicht gefunden. Siehe /list.",
	"Tunnel %d added (%s).":           "Tunnel %d hinzugefügt (%s).",
	"Tunnel %d updated.":              "Tunnel %d aktualisiert.",
	"Tunnel %d deleted (%s).":         "Tunnel %d gelöscht (%s).",
	"Health check port set to %s.":    "Health-Check-Port auf %s gesetzt.",
	"Configuration applied (%s).":     "Konfiguration aktiviert (%s).",
	"in sync":                         "synchron",
	"out of sync, run /apply":         "nicht synchron, /apply ausführen",
	"Error: %s":                       "Fehler: %s",
	"Unknown command /%s. Try /help.": "Unbekannter Befehl /%s. Siehe /help.",
	"Too many commands, try again in a minute.": "Zu viele Befehle, bitte in einer Minute erneut versuchen.",
}

func init() {
	for key, msg := range german {
		_ = message.SetString(language.German, key, msg)
	}
}
