package protocol

// This package implements parsing and serialising payloads for the NSQ TCP
// protocol (V2), as spoken between a consumer and an nsqd node.
//
// Nothing in here touches a socket. Decoding works over a byte buffer that
// the caller fills from wherever the bytes come from, encoding writes to an
// io.Writer.
//
// - `Frame`   - One length-prefixed unit sent by nsqd.
// - `Message` - The payload of a message frame.
// - `Command` - A client instruction to nsqd.
//
// === Handshake
//
// The client opens with the 4 byte magic and then IDENTIFYs itself.
//
//   ```
//     >   V2
//     > IDENTIFY\n<size><json>
//     < <frame type=0 "OK">
//   ```
//
// === Frames
//
// Everything nsqd sends is framed
//
//   ```
//     [size: int32][frame type: int32][body: size-4 bytes]
//   ```
//
// Where `size` covers the frame type and the body but not itself. A frame
// is only decoded once all of it has arrived, the size is never consumed
// on its own.
//
//   - 0 Response, body is text such as `OK` or `_heartbeat_`
//   - 1 Error, body is text such as `E_INVALID ...`
//   - 2 Message
//
// ==== Message body
//
//   ```
//     [timestamp: int64][attempts: uint16][id: 16 bytes][body]
//   ```
//
// === Commands
//
// Commands are a `\n` terminated line, some followed by a size prefixed
// body.
//
//   ```
//     NOP\n
//     FIN <id>\n
//     REQ <id> <delay ms>\n
//     TOUCH <id>\n
//     RDY <count>\n
//     SUB <topic> <channel>\n
//     CLS\n
//     PUB <topic>\n<size><body>
//     MPUB <topic>\n<size><count>[<size><body>]...
//   ```
//
// nsqd never acknowledges FIN, REQ, TOUCH or NOP.
