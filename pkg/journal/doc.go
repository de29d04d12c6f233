/*
Package journal provides queueio's transport-neutral event bus: every
subscribed process eventually observes every published byte payload,
best-effort and non-durable — the journal carries no guarantee of
delivery order across publishers or survival across a restart.

MemoryJournal is the in-process implementation, fanning payloads out
over broadcast channels; package stream owns the typed encoding.
*/
package journal
