/*
Package session serializes concurrent asks on the same conversation.

A single replica serializes through reference-counted in-process mutexes;
configuring a distributed locker extends the guarantee across replicas, so
the context packer and message persistence always observe a consistent
history.
*/
package session
