// Package isp maps geolocation provider strings to canonical ISP keys and
// holds the fixed support-contact directory for those keys.
package isp

import "strings"

// UnknownKey is the fallback key for any ISP the resolver cannot identify.
const UnknownKey = "unknown"

// Social holds social-media handles for an ISP's support channels.
type Social struct {
	Twitter  string `json:"twitter"`
	Facebook string `json:"facebook"`
}

// Contact is a support contact record. Empty strings mean the channel
// is not offered.
type Contact struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	SupportPhone string `json:"support_phone"`
	SupportEmail string `json:"support_email"`
	WhatsApp     string `json:"whatsapp"`
	Website      string `json:"website"`
	LiveChat     string `json:"live_chat"`
	Social       Social `json:"social_media"`
}

var contacts = [...]Contact{
	{
		Key:          "afrihost",
		Name:         "Afrihost",
		SupportPhone: "011 612 7200",
		SupportEmail: "support@afrihost.com",
		WhatsApp:     "+27 11 612 7200",
		Website:      "https://www.afrihost.com",
		LiveChat:     "https://www.afrihost.com/contact",
		Social:       Social{Twitter: "@Afrihost", Facebook: "facebook.com/afrihost"},
	},
	{
		Key:          "webafrica",
		Name:         "Webafrica",
		SupportPhone: "021 464 5000",
		SupportEmail: "support@webafrica.co.za",
		WhatsApp:     "+27 21 464 5000",
		Website:      "https://www.webafrica.co.za",
		LiveChat:     "https://www.webafrica.co.za/contact-us",
		Social:       Social{Twitter: "@webafrica", Facebook: "facebook.com/webafrica"},
	},
	{
		Key:          "cool_ideas",
		Name:         "Cool Ideas",
		SupportPhone: "0861 266 543",
		SupportEmail: "support@coolideas.co.za",
		Website:      "https://www.coolideas.co.za",
		LiveChat:     "https://www.coolideas.co.za/contact",
		Social:       Social{Twitter: "@coolideasfibre", Facebook: "facebook.com/coolideasfibre"},
	},
	{
		Key:          "vox",
		Name:         "Vox Telecom",
		SupportPhone: "087 805 0000",
		SupportEmail: "support@vox.co.za",
		WhatsApp:     "+27 87 805 0000",
		Website:      "https://www.vox.co.za",
		Social:       Social{Twitter: "@voxtelecom", Facebook: "facebook.com/voxtelecom"},
	},
	{
		Key:          "rain",
		Name:         "Rain",
		SupportEmail: "help@rain.co.za",
		WhatsApp:     "+27 87 820 0000",
		Website:      "https://www.rain.co.za",
		LiveChat:     "https://www.rain.co.za/help",
		Social:       Social{Twitter: "@rain_sa", Facebook: "facebook.com/rainSouthAfrica"},
	},
	{
		Key:          "cell_c",
		Name:         "Cell C",
		SupportPhone: "084 140",
		SupportEmail: "customercare@cellc.co.za",
		WhatsApp:     "+27 84 140 0000",
		Website:      "https://www.cellc.co.za",
		LiveChat:     "https://www.cellc.co.za/cellc/contact-us",
		Social:       Social{Twitter: "@CellC", Facebook: "facebook.com/CellCSA"},
	},
	{
		Key:          "mtn",
		Name:         "MTN",
		SupportPhone: "083 135",
		SupportEmail: "customercare@mtn.co.za",
		WhatsApp:     "+27 83 135 0000",
		Website:      "https://www.mtn.co.za",
		LiveChat:     "https://www.mtn.co.za/help",
		Social:       Social{Twitter: "@MTNza", Facebook: "facebook.com/MTNSouthAfrica"},
	},
	{
		Key:          "vodacom",
		Name:         "Vodacom",
		SupportPhone: "082 111",
		SupportEmail: "customercare@vodacom.co.za",
		WhatsApp:     "+27 82 111 0000",
		Website:      "https://www.vodacom.co.za",
		LiveChat:     "https://www.vodacom.co.za/vodacom/contact-us",
		Social:       Social{Twitter: "@Vodacom", Facebook: "facebook.com/Vodacom"},
	},
	{
		Key:          "telkom",
		Name:         "Telkom",
		SupportPhone: "10210",
		SupportEmail: "customercare@telkom.co.za",
		WhatsApp:     "+27 81 180 0000",
		Website:      "https://www.telkom.co.za",
		LiveChat:     "https://www.telkom.co.za/contact-us",
		Social:       Social{Twitter: "@TelkomZA", Facebook: "facebook.com/TelkomZA"},
	},
	{
		Key:  UnknownKey,
		Name: "Unknown ISP",
	},
}

// Directory is an immutable table of support contacts indexed by key.
type Directory struct {
	entries []Contact
	index   map[string]int
	unknown int
}

var defaultDirectory = NewDirectory()

// Default returns the shared directory built from the compiled-in table.
func Default() *Directory {
	return defaultDirectory
}

// NewDirectory builds a directory from the compiled-in contact table.
func NewDirectory() *Directory {
	d := &Directory{
		entries: contacts[:],
		index:   make(map[string]int, len(contacts)),
	}
	for i, c := range d.entries {
		d.index[c.Key] = i
	}
	d.unknown = d.index[UnknownKey]
	return d
}

// Get returns the contact for key, ignoring case and surrounding space.
// Unrecognised keys yield the unknown record.
func (d *Directory) Get(key string) Contact {
	if i, ok := d.index[strings.ToLower(strings.TrimSpace(key))]; ok {
		return d.entries[i]
	}
	return d.entries[d.unknown]
}

// Has reports whether key names a directory entry.
func (d *Directory) Has(key string) bool {
	_, ok := d.index[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// All returns a copy of every contact in table order.
func (d *Directory) All() []Contact {
	out := make([]Contact, len(d.entries))
	copy(out, d.entries)
	return out
}

// Keys lists the directory keys in table order.
func (d *Directory) Keys() []string {
	keys := make([]string, len(d.entries))
	for i, c := range d.entries {
		keys[i] = c.Key
	}
	return keys
}
