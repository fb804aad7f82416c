package conversions

import "strings"

var socialHosts = []string{"whatsapp", "wa.me", "instagram", "facebook"}

// noStoreFields are the form fields that ask about a registered business or
// a physical store. Names are compared after lowercasing and folding "-" and
// spaces into "_".
var noStoreFields = map[string]bool{
	"cnpj":        true,
	"has_cnpj":    true,
	"cnpj_status": true,
	"possui_cnpj": true,
	"tem_cnpj":    true,
	"possui_loja": true,
	"tem_loja":    true,
	"loja_fisica": true,
	"has_store":   true,
	"store":       true,
}

var fieldNameFolder = strings.NewReplacer("-", "_", " ", "_")

var negativeValues = map[string]bool{
	"nao":        true,
	"não":        true,
	"no":         true,
	"false":      true,
	"0":          true,
	"sem_cnpj":   true,
	"nao_possui": true,
	"não_possui": true,
}

// ClassifyLink maps a clicked href to the conversion it represents, if any.
func ClassifyLink(href string) (ConversionType, bool) {
	link := strings.ToLower(strings.TrimSpace(href))
	switch {
	case link == "":
		return "", false
	case strings.HasPrefix(link, "tel:"):
		return TypePhoneClick, true
	case strings.HasPrefix(link, "mailto:"):
		return TypeEmailClick, true
	}
	for _, host := range socialHosts {
		if strings.Contains(link, host) {
			return TypeSocialClick, true
		}
	}
	return "", false
}

// IsNoStoreSignal reports whether a form field change says the visitor has
// no registered business or no physical store.
func IsNoStoreSignal(fieldName, value string) bool {
	name := fieldNameFolder.Replace(strings.ToLower(strings.TrimSpace(fieldName)))
	if !noStoreFields[name] {
		return false
	}

	return negativeValues[strings.ToLower(strings.TrimSpace(value))]
}
