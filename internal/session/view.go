package session

// View is what the browser shows for one session.
type View struct {
	Key        string
	Label      string
	Titled     bool
	Title      string
	Transcript string
}

// View loads the browse view for key. Untitled sessions carry no transcript:
// the browser asks for a title first.
func (s *Store) View(key string) (View, error) {
	sess, err := s.Open(key)
	if err != nil {
		return View{}, err
	}

	label, err := Label(key)
	if err != nil {
		return View{}, err
	}

	view := View{Key: key, Label: label}

	titled, err := sess.HasTitle()
	if err != nil {
		return View{}, err
	}
	if !titled {
		return view, nil
	}

	view.Titled = true
	if view.Title, err = sess.Title(); err != nil {
		return View{}, err
	}
	if view.Transcript, err = sess.Transcript(); err != nil {
		return View{}, err
	}

	return view, nil
}
