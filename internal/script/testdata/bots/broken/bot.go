package bot

func Bot( {
