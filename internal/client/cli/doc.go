// Package cli provides the interactive accountsync command-line client.
//
// It wires configuration, the client database, the credential keystore, the
// backend gateway and an interactive REPL that supports online/offline
// operation. Typical flow: resume the saved session or prompt for
// credentials, start a background connectivity watcher, and execute user
// commands.
//
// Key features:
//   - Login by email, username or phone, online with offline fallback
//   - Register, Logout, WhoAmI
//   - Recent logins (pick one with #n at the login prompt)
//   - Resolve a local/remote conflict reported by login
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
