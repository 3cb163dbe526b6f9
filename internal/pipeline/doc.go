// Package pipeline moves one content item from the content source into chat.
//
// Deliver picks one of three mutually exclusive strategies from the shape of
// the media set: a single video is streamed, probed, and uploaded on its own;
// any other non-empty set is downloaded item by item and uploaded as albums of
// at most BatchSize entries with the caption on the last album; an item
// without media is sent as text. Threaded comments follow the primary media,
// each addressed to its parent's message through an id map kept for the
// duration of the delivery.
//
// Every download chunk, item, and album boundary is a checkpoint of the
// operation's transfer.Control. Pausing blocks the next checkpoint and
// cancelling ends the delivery there; messages already sent are left in place
// and reported in the Result so they can still be recorded.
//
// Uploads that fail fall through an explicit Chain of alternative send steps
// (for example voice, music file, generic file, text link). A failure inside
// one item's chain never aborts the rest of the item set.
package pipeline
