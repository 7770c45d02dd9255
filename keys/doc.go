// Package keys manages RSA signing identities.
//
// A KeyPair wraps an RSA private key and implements crypto.Signer. It
// cannot be marshalled and redacts itself in fmt and slog output, so
// private key material only ever leaves the process through a Store.
//
// The public half is exchanged as DER SubjectPublicKeyInfo (PKIX).
// ParsePublicKey additionally accepts PKCS#1 DER and PEM input.
//
// A Manager holds the active KeyPair and supports concurrent signing
// alongside rotation:
//
//	m, err := keys.NewManager(keys.ManagerConfig{
//		Store:   store,
//		KeyBits: 3072,
//	})
//	if err != nil {
//		return err
//	}
//
//	if err := m.Init(ctx); err != nil {
//		return err
//	}
//
//	err = m.WithKeyPair(func(kp *keys.KeyPair) error {
//		// kp stays active until this function returns
//		return nil
//	})
package keys
