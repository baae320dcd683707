/*
Package mailbox implements the file mailbox shared by the launcher, the
browser session and the desktop session.

# Layout

One active JSON document lives in the mailbox directory. Every write
replaces it atomically (temp file, fsync, rename); the version it replaces
is kept as <name>.notified_<epoch>, with a .N suffix when several writes
land in the same second. Nothing is merged or edited in place.

# Documents

Producers drop raw JSON (their own schema) into the active file or POST it to
the local listener, which calls AcceptInbound. Read returns such a file with
Normalized unset. Once normalized, the canonical envelope is written back
with Write and the raw producer file becomes the newest backup.

	store, err := mailbox.New(mailbox.Options{Dir: dir})
	doc, err := store.Read()      // nil, nil when nothing was written yet
	err = store.Watch(ctx, func() { ... })
	err = store.Purge()           // on confirmed session exit
*/
package mailbox
