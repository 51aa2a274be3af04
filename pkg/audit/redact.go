package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// redactRecord removes personal data before the row leaves the process. The
// token hash is re-hashed under the audit salt so an audit dump cannot be
// joined against the validation cache or database parameters, and the user
// email keeps only its domain.
func redactRecord(rec Record, salt []byte) Record {
	rec.TokenHash = hashString(rec.TokenHash, salt)
	rec.UserEmail = redactEmail(rec.UserEmail)
	return rec
}

func redactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return "*@" + email[at+1:]
}

func hashString(v string, salt []byte) string {
	h := sha256.New()
	if len(salt) > 0 {
		_, _ = h.Write(salt)
	}
	_, _ = h.Write([]byte(v))
	return hex.EncodeToString(h.Sum(nil))
}
