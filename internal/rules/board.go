package rules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var pieceLetters = map[nchess.PieceType]byte{
	nchess.King:   'k',
	nchess.Queen:  'q',
	nchess.Rook:   'r',
	nchess.Bishop: 'b',
	nchess.Knight: 'n',
	nchess.Pawn:   'p',
}

// BoardASCII renders position as a text board, rank 8 at the top,
// white pieces upper-case. Used by the CLI surface only.
func BoardASCII(position string) (string, error) {
	game, err := gameFrom(position)
	if err != nil {
		return "", err
	}
	board := game.Position().Board()

	var b strings.Builder
	for rank := nchess.Rank8; rank >= nchess.Rank1; rank-- {
		b.WriteByte('1' + byte(rank))
		b.WriteByte(' ')
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			cell := byte('.')
			if piece != nchess.NoPiece {
				cell = pieceLetters[piece.Type()]
				if piece.Color() == nchess.White {
					cell -= 'a' - 'A'
				}
			}
			b.WriteByte(' ')
			b.WriteByte(cell)
		}
		b.WriteByte('\n')
	}
	b.WriteString("   a b c d e f g h\n")
	return b.String(), nil
}
