package main

// caesarCipher shifts every ASCII letter by the given amount within its own
// case, wrapping modulo 26. Everything else passes through untouched, so
// applying the negative shift to the output recovers the input.
func caesarCipher(text string, shift int) string {
	// normalize so negative shifts wrap the same way as positive ones
	offset := rune(((shift % 26) + 26) % 26)

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case r >= 'a' && r <= 'z':
			runes[i] = 'a' + (r-'a'+offset)%26
		case r >= 'A' && r <= 'Z':
			runes[i] = 'A' + (r-'A'+offset)%26
		}
	}
	return string(runes)
}
