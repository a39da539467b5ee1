package templates

import (
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"mvdan.cc/sh/v3/syntax"
)

// impureFuncs are sprig functions whose output depends on the clock,
// randomness, the environment or the network.
var impureFuncs = []string{
	"now", "date", "dateInZone", "date_in_zone", "dateModify", "date_modify",
	"mustDateModify", "must_date_modify", "ago", "htmlDate", "htmlDateInZone",
	"unixEpoch",
	"randAlphaNum", "randAlpha", "randAscii", "randNumeric", "randBytes", "randInt",
	"uuidv4", "shuffle",
	"env", "expandenv",
	"genPrivateKey", "genCA", "genCAWithKey", "genSelfSignedCert",
	"genSelfSignedCertWithKey", "genSignedCert", "genSignedCertWithKey",
	"encryptAES", "bcrypt", "htpasswd",
	"getHostByName",
}

// FuncMap returns the functions available to templates: sprig without its
// impure functions, plus shquote and json.
func FuncMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	for _, name := range impureFuncs {
		delete(fm, name)
	}
	fm["shquote"] = shellQuote
	fm["json"] = jsonString
	return fm
}

// shellQuote quotes v so that bash reads it back as the same literal word.
func shellQuote(v interface{}) (string, error) {
	s := fmt.Sprint(v)
	if s == "" {
		return "''", nil
	}
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q for the shell: %w", s, err)
	}
	return q, nil
}

// jsonString renders v as a JSON literal, which is also a JavaScript literal.
func jsonString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
