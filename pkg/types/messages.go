package types

// Client -> Server (JSON text frames, discriminated by "type")
// join:
//   sessionId: string
//   displayName: string
//
// move:
//   sessionId: string
//   move: any            // forwarded untouched to the opponent
//   gameState?: Snapshot // recorded, never broadcast
//
// stateUpdate:
//   sessionId: string
//   gameState: Snapshot
//
// requestState:
//   sessionId: string
//
// leave:
//   sessionId: string

// Server -> Client
// roster:
//   sessionId: string
//   players: { displayName: string, role: "white" | "black" }[]
//
// snapshot:
//   sessionId: string
//   state: Snapshot // only sent when meaningful
//
// sessionFull:
//   sessionId: string
//
// opponentMove:
//   sessionId: string
//   move: any
//
// playerTemporarilyDisconnected:
//   sessionId: string
//   identity: string
//
// playerLeft:
//   sessionId: string
//   leavingIdentity: string
//   winner: string
//   reason: string
//
// error:
//   message: string
