package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	messageTitle     = "Login to CRM System"
	messageRequest   = "Please sign this message to authenticate your wallet.\nThis signature will be used to verify your identity."
	messageOwnership = "By signing this message, you confirm that you are the owner of this wallet address."
)

// BuildMessage returns the canonical challenge text for an address, nonce and issue time.
// The output is signed verbatim by the wallet and rebuilt at verification, so the layout
// must never change between the two.
func BuildMessage(address, nonce string, issuedAt time.Time) string {
	var b strings.Builder
	b.WriteString(messageTitle)
	b.WriteString("\n\nWallet Address: ")
	b.WriteString(address)
	b.WriteString("\nTimestamp: ")
	b.WriteString(strconv.FormatInt(issuedAt.UnixMilli(), 10))
	b.WriteString("\nNonce: ")
	b.WriteString(nonce)
	b.WriteString("\n\n")
	b.WriteString(messageRequest)
	b.WriteString("\n\n")
	b.WriteString(messageOwnership)
	return b.String()
}
