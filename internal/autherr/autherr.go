// Package autherr turns auth provider error codes into text a player can read.
package autherr

import (
	"errors"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
)

// Fallback is shown for any code outside the known set.
const Fallback = "Ocorreu um erro."

var messages = map[string]string{
	identity.CodeUserNotFound:      "Usuário não encontrado.",
	identity.CodeWrongPassword:     "Senha incorreta.",
	identity.CodeEmailInUse:        "Este e-mail já está em uso.",
	identity.CodeWeakPassword:      "Senha muito fraca.",
	identity.CodeInvalidEmail:      "E-mail inválido.",
	identity.CodeInvalidCredential: "E-mail ou senha incorretos.",
	identity.CodeTooManyRequests:   "Muitas tentativas. Tente novamente mais tarde.",
	identity.CodeUserDisabled:      "Esta conta foi desativada.",
}

// Translate maps a provider error code to its display text.
func Translate(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return Fallback
}

// Codes lists every code with a dedicated message.
func Codes() []string {
	out := make([]string, 0, len(messages))
	for c := range messages {
		out = append(out, c)
	}
	return out
}

// FromError translates the provider code carried by err, or returns Fallback.
func FromError(err error) string {
	var ae *identity.AuthError
	if errors.As(err, &ae) {
		return Translate(ae.Code)
	}
	return Fallback
}
