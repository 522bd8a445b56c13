package grid

// seoul is the default collection grid: 60 points over the busy districts of
// Seoul, grouped by region.
var seoul = []Point{
	{Name: "gangnam-station", Region: "gangnam", Lat: 37.4979, Lng: 127.0276},
	{Name: "seolleung", Region: "gangnam", Lat: 37.5048, Lng: 127.0493},
	{Name: "samseong", Region: "gangnam", Lat: 37.5087, Lng: 127.0633},
	{Name: "yeoksam", Region: "gangnam", Lat: 37.5007, Lng: 127.0361},
	{Name: "gyodae", Region: "gangnam", Lat: 37.4933, Lng: 127.0143},
	{Name: "seocho", Region: "gangnam", Lat: 37.4837, Lng: 127.0324},
	{Name: "yangjae", Region: "gangnam", Lat: 37.4686, Lng: 127.0348},
	{Name: "dogok", Region: "gangnam", Lat: 37.4908, Lng: 127.0553},
	{Name: "daechi", Region: "gangnam", Lat: 37.4941, Lng: 127.0628},
	{Name: "gaepo", Region: "gangnam", Lat: 37.4893, Lng: 127.0669},

	{Name: "jamsil", Region: "songpa", Lat: 37.5133, Lng: 127.1000},
	{Name: "seokchon", Region: "songpa", Lat: 37.5048, Lng: 127.1062},
	{Name: "songpa", Region: "songpa", Lat: 37.5145, Lng: 127.1058},
	{Name: "garak", Region: "songpa", Lat: 37.4965, Lng: 127.1184},
	{Name: "cheonho", Region: "songpa", Lat: 37.5387, Lng: 127.1238},
	{Name: "gangdong", Region: "songpa", Lat: 37.5301, Lng: 127.1238},
	{Name: "dunchon", Region: "songpa", Lat: 37.5273, Lng: 127.1362},
	{Name: "olympic-park", Region: "songpa", Lat: 37.5206, Lng: 127.1214},

	{Name: "hongdae", Region: "mapo", Lat: 37.5571, Lng: 126.9245},
	{Name: "sinchon", Region: "mapo", Lat: 37.5553, Lng: 126.9369},
	{Name: "ewha", Region: "mapo", Lat: 37.5597, Lng: 126.9465},
	{Name: "ahyeon", Region: "mapo", Lat: 37.5571, Lng: 126.9558},
	{Name: "gongdeok", Region: "mapo", Lat: 37.5438, Lng: 126.9516},
	{Name: "mapo", Region: "mapo", Lat: 37.5397, Lng: 126.9456},
	{Name: "yeonnam", Region: "mapo", Lat: 37.5658, Lng: 126.9254},
	{Name: "seogyo", Region: "mapo", Lat: 37.5527, Lng: 126.9183},

	{Name: "gwanghwamun", Region: "jongno", Lat: 37.5720, Lng: 126.9769},
	{Name: "jongno", Region: "jongno", Lat: 37.5704, Lng: 126.9851},
	{Name: "myeongdong", Region: "jongno", Lat: 37.5635, Lng: 126.9825},
	{Name: "euljiro", Region: "jongno", Lat: 37.5660, Lng: 126.9910},
	{Name: "dongdaemun", Region: "jongno", Lat: 37.5714, Lng: 127.0093},
	{Name: "hyehwa", Region: "jongno", Lat: 37.5820, Lng: 127.0019},
	{Name: "sungkyunkwan", Region: "jongno", Lat: 37.5880, Lng: 126.9943},
	{Name: "changgyeonggung", Region: "jongno", Lat: 37.5790, Lng: 127.0050},

	{Name: "itaewon", Region: "yongsan", Lat: 37.5345, Lng: 126.9945},
	{Name: "hannam", Region: "yongsan", Lat: 37.5340, Lng: 127.0043},
	{Name: "yongsan", Region: "yongsan", Lat: 37.5298, Lng: 126.9648},
	{Name: "samgakji", Region: "yongsan", Lat: 37.5347, Lng: 126.9731},

	{Name: "wangsimni", Region: "seongdong", Lat: 37.5610, Lng: 127.0374},
	{Name: "seongsu", Region: "seongdong", Lat: 37.5444, Lng: 127.0557},
	{Name: "konkuk-univ", Region: "seongdong", Lat: 37.5405, Lng: 127.0701},
	{Name: "ttukseom", Region: "seongdong", Lat: 37.5475, Lng: 127.0471},
	{Name: "guui", Region: "seongdong", Lat: 37.5371, Lng: 127.0856},
	{Name: "jayang", Region: "seongdong", Lat: 37.5353, Lng: 127.0795},

	{Name: "yeouido", Region: "yeongdeungpo", Lat: 37.5219, Lng: 126.9245},
	{Name: "yeongdeungpo", Region: "yeongdeungpo", Lat: 37.5156, Lng: 126.9075},
	{Name: "sindorim", Region: "yeongdeungpo", Lat: 37.5087, Lng: 126.8911},
	{Name: "guro", Region: "yeongdeungpo", Lat: 37.4954, Lng: 126.8876},
	{Name: "daerim", Region: "yeongdeungpo", Lat: 37.4935, Lng: 126.8989},
	{Name: "singil", Region: "yeongdeungpo", Lat: 37.5045, Lng: 126.9141},

	{Name: "sadang", Region: "gwanak", Lat: 37.4765, Lng: 126.9816},
	{Name: "sillim", Region: "gwanak", Lat: 37.4843, Lng: 126.9297},
	{Name: "bongcheon", Region: "gwanak", Lat: 37.4823, Lng: 126.9516},
	{Name: "noryangjin", Region: "gwanak", Lat: 37.5126, Lng: 126.9425},
	{Name: "sangdo", Region: "gwanak", Lat: 37.5028, Lng: 126.9480},

	{Name: "seongbuk", Region: "gangbuk", Lat: 37.5893, Lng: 127.0167},
	{Name: "mia", Region: "gangbuk", Lat: 37.6276, Lng: 127.0258},
	{Name: "suyu", Region: "gangbuk", Lat: 37.6377, Lng: 127.0254},
	{Name: "nowon", Region: "gangbuk", Lat: 37.6542, Lng: 127.0568},
	{Name: "sanggye", Region: "gangbuk", Lat: 37.6598, Lng: 127.0732},
}
