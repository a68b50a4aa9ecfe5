/*
Package store implements a typed, cached object-mapping layer on top of a
document database (in this case, any backend implementing DataTable).

We implement:

1. Datastores, typed façades over one remote table plus a local cache of
data items keyed by primary key.

2. Data items, identity-bearing handles (datastore, key) with a possibly
absent value and last-access metadata. Within one datastore at most one
live item exists per key.

3. A codec pipeline translating between domain values and self-describing
document trees, including polymorphic classes, enumerations, nested maps
and parameterized containers.

4. Find/fetch orchestration: cache probe, remote query, decode, and
exactly-once completion of a status handle.

# Technical Details

**Documents.**
A Document is an untyped recursive tree: scalars, lists ([]any), and
string-keyed maps. A map node may carry a reserved "__class" field naming
a registered type; decoders honor it when the registry resolves the name.

**Map keys.**
Maps with string keys encode as document nodes. Maps with other keys
encode as lists of [key, value] pairs with the key in its string form:
integers as decimal text, floating-point numbers as the decimal text of
their IEEE-754 bit pattern (preserving NaN bits and signed zero).

**Codecs.**
The data manager resolves a codec per Go type. Struct codecs are derived
reflectively and cached; enumeration types and polymorphic class names
are registered explicitly. Construction is split from field decoding so
cyclic object graphs can register themselves before their fields resolve.

**Caching.**
The cache is the only shared mutable structure. GetOrCompute is
single-flight: concurrent references to the same key observe the same
item. Items carry created time plus saturating millisecond offsets for
the last fetch and last reference.

**Backends.**
Storage backends live in subpackages: memsource (in-memory), boltsource
(Bolt buckets with msgpack-encoded documents), badgersource (Badger).
The core only sees the DataTable abstraction.
*/
package store
