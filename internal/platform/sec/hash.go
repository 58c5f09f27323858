// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain-text password using the bcrypt algorithm.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
// bcrypt's comparison is not short-circuited on early mismatch, so absent
// accounts and wrong passwords take comparable time.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// HashOneTimeSecret hashes a one-time token secret for persistence. Only the
// salted hash is ever stored; the plaintext secret goes out in the email link
// and is never written anywhere server-side.
func HashOneTimeSecret(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash one-time secret: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckOneTimeSecret verifies a presented secret against its stored hash.
// Comparison is verification, never plaintext equality.
func CheckOneTimeSecret(secret, existingHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(secret)) == nil
}
