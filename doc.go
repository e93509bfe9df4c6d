/*
Package svo contains a sparse voxel octree which maps 3-D integer
coordinates to voxel values, stored in fixed-size slots of an arena that
obtains its memory from a pluggable block allocator.

# Arena

An arena requests fixed-size chunks from a BlockAllocator (host memory,
or a staging copy of a remote buffer) and carves them into equally sized
slots. A slot is addressed by a Handle, a packed 32-bit value:

	+--------------------------------+-----------------------------+
	| chunk index (32 - slotBits)    | slot index (slotBits)       |
	+--------------------------------+-----------------------------+

The all-ones value is reserved as None. Freed slots form a linked list
threaded through the slots themselves. Every written slot is recorded in
a ChangeSet, which keeps one bounding slot range per chunk, so that Flush
only has to copy dirty bytes to the allocator's backing store.

# Octree

Each node occupies one slot:

	+-----------------------+----------+-----------+--------------------+----------------------+
	| children (8x4 bytes)  | freemask | occupancy | extended (8 bytes) | values (8 x size(T)) |
	+-----------------------+----------+-----------+--------------------+----------------------+

A corner whose freemask bit is clear has no node of its own; it is a
virtual region holding a single value. Writes materialise nodes along the
path as needed and collapse them again once their region is uniform.

# Snapshot

A snapshot contains a header, one frame per chunk, a frame index and a
footer.

	Snapshot layout:
	+--------+---------+---------+---------+-------------+-----------------+
	| header | chunk 1 |   ...   | chunk n | frame index | snapshot footer |
	+--------+---------+---------+---------+-------------+-----------------+

	Header:
	+-----------------+-----------+------------------+---------------------------------+---------------------+
	| magic (8 bytes) | version   | length (varint)  | tree and arena fields (varints) | root value (varlen) |
	+-----------------+-----------+------------------+---------------------------------+---------------------+

	Frame:
	+----------------------+---------------------------+
	| chunk data (varlen)  | compression type (1-byte) |
	+----------------------+---------------------------+

	Frame index:
	+-------------------------+--------------------------------+--------+
	| frame offset 1 (varint) |  frame offset 2 (varint,delta) |   ...  |
	+-------------------------+--------------------------------+--------+

	Snapshot footer:
	+------------------------+------------------+
	| index offset (8 bytes) |  magic (8 bytes) |
	+------------------------+------------------+
*/
package svo
