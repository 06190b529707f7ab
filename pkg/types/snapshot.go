package types

// Snapshot (every field optional, merged field by field on the server):
//   board: string        // FEN
//   moveHistory: any[]
//   currentTurn: "w" | "b"
//   gameOver: boolean
//   winner: string
//   drawReason: string
//   meaningful: boolean  // overrides the board/moveHistory heuristic
