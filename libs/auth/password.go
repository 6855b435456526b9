package auth

import "golang.org/x/crypto/bcrypt"

// PasswordCost matches the work factor used for the seeded accounts.
const PasswordCost = 10

func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
